// Package iocli abstracts terminal input and output for the command line.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal seen by commands. Results go to the output stream,
// prompts and notices to the error stream.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Errorf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
