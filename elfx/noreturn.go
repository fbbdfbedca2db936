package elfx

// noreturnDefinite and noreturnPossible classify imported symbols against a
// fixed list of library functions that never return to their caller,
// ported verbatim (including the C++/Fortran/Windows runtime entries) from
// the static-analysis framework this package's relocation handling is
// grounded on, since spec.md section 6 calls for exactly "47 definite, 5
// possible, enumerated by symbol name".
var noreturnDefinite = map[string]bool{
	"abort": true, "_exit": true, "exit": true, "xexit": true,
	"__stack_chk_fail": true, "__assert_fail": true, "__fortify_fail": true,
	"__chk_fail": true, "err": true, "errx": true, "verr": true, "verrx": true,
	"g_assertion_message_expr": true, "longjmp": true, "__longjmp": true,
	"__longjmp_chk": true, "_Unwind_Resume": true,
	"_ZSt17__throw_bad_allocv":           true,
	"_ZSt20__throw_length_errorPKc":      true,
	"__f90_stop":                         true,
	"fancy_abort":                        true,
	"ExitProcess":                        true,
	"_ZSt20__throw_out_of_rangePKc":      true,
	"__cxa_throw":                        true,
	"_ZSt21__throw_runtime_errorPKc":     true,
	"_ZSt9terminatev":                    true,
	"_gfortran_os_error":                 true,
	"_ZSt24__throw_out_of_range_fmtPKcz": true,
	"_gfortran_runtime_error":            true,
	"_gfortran_stop_numeric":             true,
	"_gfortran_runtime_error_at":         true,
	"_gfortran_stop_string":              true,
	"_gfortran_abort":                    true,
	"_gfortran_exit_i8":                  true,
	"_gfortran_exit_i4":                  true,
	"for_stop_core":                      true,
	"__sys_exit":                         true,
	"_Exit":                              true,
	"ExitThread":                         true,
	"FatalExit":                          true,
	"RaiseException":                     true,
	"RtlRaiseException":                  true,
	"TerminateProcess":                   true,
	"__cxa_throw_bad_array_new_length":   true,
	"_ZSt19__throw_logic_errorPKc":       true,
	"_Z8V8_FatalPKciS0_z":                true,
	"_ZSt16__throw_bad_castv":            true,
}

var noreturnPossible = map[string]bool{
	"__fprintf_chk":  true,
	"__printf_chk":   true,
	"error":          true,
	"__vfprintf_chk": true,
	"__cxa_rethrow":  true,
}

// IsNoreturnDefinite reports whether name is one of the 47 library
// functions known to never return.
func IsNoreturnDefinite(name string) bool { return noreturnDefinite[name] }

// IsNoreturnPossible reports whether name is one of the 5 functions that
// sometimes do not return (e.g. a *_chk variant that aborts only on a
// detected overflow).
func IsNoreturnPossible(name string) bool { return noreturnPossible[name] }
