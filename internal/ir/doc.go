// Package ir defines the reminder model shared by every other package.
//
// ir imports nothing internal. Trigger, condition and event payloads are
// sealed interfaces; a payload type only exists for the enum values that
// carry one, and unknown enum values decode into Raw* payloads that the
// evaluators treat as "never matches".
//
// All JSON uses snake_case keys. All timestamps are epoch milliseconds.
package ir
