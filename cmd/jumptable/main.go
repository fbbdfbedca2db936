package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/codegangsta/cli"

	"github.com/lxyhome-bit/indirect-jmp/config"
	"github.com/lxyhome-bit/indirect-jmp/driver"
	"github.com/lxyhome-bit/indirect-jmp/utils"
)

var baseDirFlag = cli.StringFlag{
	Name:  "d",
	Usage: "base directory for scratch files",
	Value: os.TempDir(),
}

var outFlag = cli.StringFlag{
	Name:  "o",
	Usage: "output JSON file (default: stdout)",
}

var lifterFlag = cli.StringFlag{
	Name:  "lifter",
	Usage: "external lifter binary",
	Value: "lifter",
}

// HexAddr marshals as the bare hex digits of the address, without a "0x"
// prefix, per spec.md section 6's JSON output shape -- and as a map key,
// since it implements encoding.TextMarshaler.
type HexAddr uint64

func (h HexAddr) String() string               { return fmt.Sprintf("%x", uint64(h)) }
func (h HexAddr) MarshalText() ([]byte, error) { return []byte(h.String()), nil }
func (h HexAddr) MarshalJSON() ([]byte, error) { return json.Marshal(h.String()) }

type output struct {
	IndirectJumpLocations map[HexAddr][]HexAddr `json:"indirect_jump_locations"`
	JumpTableLocations    map[HexAddr][]HexAddr `json:"jump_table_locations"`
	VfuncLocations        map[HexAddr]HexAddr   `json:"vfunc_locations"`
}

func toOutput(r *driver.Result) output {
	out := output{
		IndirectJumpLocations: make(map[HexAddr][]HexAddr, len(r.IndirectJumpLocations)),
		JumpTableLocations:    make(map[HexAddr][]HexAddr, len(r.JumpTableLocations)),
		VfuncLocations:        make(map[HexAddr]HexAddr, len(r.VfuncLocations)),
	}
	for loc, targets := range r.IndirectJumpLocations {
		out.IndirectJumpLocations[HexAddr(loc)] = hexSlice(targets)
	}
	for base, targets := range r.JumpTableLocations {
		out.JumpTableLocations[HexAddr(base)] = hexSlice(targets)
	}
	for slot, target := range r.VfuncLocations {
		out.VfuncLocations[HexAddr(slot)] = HexAddr(target)
	}
	return out
}

func hexSlice(in []uint64) []HexAddr {
	out := make([]HexAddr, len(in))
	for i, v := range in {
		out[i] = HexAddr(v)
	}
	return out
}

func run(c *cli.Context) int {
	args := c.Args()
	if len(args) != 2 {
		log.Printf("usage: jump_table [-d <base_dir>] [-o <out_file>] <auto_file> <binary>")
		return 1
	}
	autoFile, binary := args[0], args[1]

	if !utils.DoesPathExist(autoFile) {
		log.Printf("Error: automaton file %s does not exist", autoFile)
		return 1
	}
	if !utils.DoesPathExist(binary) {
		log.Printf("Error: binary %s does not exist", binary)
		return 1
	}

	cfg := driver.DefaultConfig()
	cfg.BaseDir = c.String("d")
	cfg.LifterPath = c.String("lifter")

	store, err := config.MakeDefaultPersistence()
	if err != nil {
		log.Printf("Error: building persistence: %s", err)
		return 1
	}
	cfg.Store = store

	result, err := driver.Run(cfg, binary, autoFile)
	if err != nil {
		log.Printf("Error: %s", err)
		return 1
	}

	data, err := json.MarshalIndent(toOutput(result), "", "  ")
	if err != nil {
		log.Printf("Error: marshalling result: %s", err)
		return 1
	}

	if outPath := c.String("o"); outPath != "" {
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			log.Printf("Error: writing %s: %s", outPath, err)
			return 1
		}
		return 0
	}
	fmt.Println(string(data))
	return 0
}

func main() {
	app := cli.NewApp()
	app.Version = "0.1"
	app.Name = "jump_table"
	app.Usage = "recover indirect jump targets, jump tables and vfunc dispatch edges from an ELF64 x86-64 binary"
	app.Flags = []cli.Flag{baseDirFlag, outFlag, lifterFlag}

	exitCode := 1
	app.Action = func(c *cli.Context) {
		exitCode = run(c)
	}
	app.Run(os.Args)
	os.Exit(exitCode)
}
