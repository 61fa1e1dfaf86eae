package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio implements IO over a reader and two writers
type Stdio struct {
	in     *bufio.Reader
	file   *os.File // in как файл, если это терминал
	out    io.Writer
	errOut io.Writer
}

// NewStdio returns IO over the process standard streams
func NewStdio() IO {
	return NewStreams(os.Stdin, os.Stdout, os.Stderr)
}

// NewStreams returns IO over the given streams. Passwords are read without
// echo only when in is a terminal.
func NewStreams(in io.Reader, out, errOut io.Writer) *Stdio {
	s := &Stdio{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.file = f
	}
	return s
}

func (s *Stdio) Println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Errorf(format string, a ...any) {
	fmt.Fprintf(s.errOut, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	fmt.Fprint(s.errOut, prompt)
	return s.readLine()
}

func (s *Stdio) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(s.errOut, prompt)
	if s.file == nil {
		return s.readLine()
	}

	pwBytes, err := term.ReadPassword(int(s.file.Fd()))
	fmt.Fprintln(s.errOut) // Переход на новую строку после ввода пароля
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}

func (s *Stdio) readLine() (string, error) {
	input, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
