package vm

import "errors"

// ErrPublicationFailed is returned by Linker.VerifyAndLink when module
// verification or dependency resolution fails.
var ErrPublicationFailed = errors.New("vm: module publication failed")

// ErrGasExhausted marks a Result with Status EffectsUserFailure caused by
// running out of gas, distinct from an explicit program abort.
var ErrGasExhausted = errors.New("vm: gas exhausted")
