package iocli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdio(t *testing.T) {
	assert.NotNil(t, NewStdio())
}

func TestStreams_Output(t *testing.T) {
	var out, errOut bytes.Buffer
	s := NewStreams(strings.NewReader(""), &out, &errOut)

	s.Println("hello", "world")
	s.Printf("n=%d\n", 1)
	s.Errorf("warning: %s\n", "x")
	_, err := s.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\nn=1\nraw", out.String())
	assert.Equal(t, "warning: x\n", errOut.String())
}

func TestStreams_ReadInput(t *testing.T) {
	var out, errOut bytes.Buffer
	s := NewStreams(strings.NewReader("first line\nsecond"), &out, &errOut)

	first, err := s.ReadInput("Name: ")
	require.NoError(t, err)
	assert.Equal(t, "first line", first)

	// Последняя строка без перевода строки тоже читается
	second, err := s.ReadPassword("Passphrase: ")
	require.NoError(t, err)
	assert.Equal(t, "second", second)

	_, err = s.ReadInput("More: ")
	assert.ErrorIs(t, err, io.EOF)

	// Приглашения пишутся в поток ошибок, не в вывод
	assert.Equal(t, "Name: Passphrase: More: ", errOut.String())
	assert.Empty(t, out.String())
}
