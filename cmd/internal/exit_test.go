package internal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) (out, errOut *bytes.Buffer, code *int) {
	out, errOut, code = new(bytes.Buffer), new(bytes.Buffer), new(int)
	*code = -1
	oldOut, oldErr, oldExit := stdout, stderr, exit
	stdout, stderr = out, errOut
	exit = func(c int) { *code = c }
	t.Cleanup(func() {
		stdout, stderr, exit = oldOut, oldErr, oldExit
	})
	return out, errOut, code
}

func TestEcho(t *testing.T) {
	out, errOut, _ := capture(t)
	Echo("hello %s", "world")
	Print("result")
	assert.Equal(t, "hello world\n", errOut.String())
	assert.Equal(t, "result\n", out.String())
}

func TestCheck(t *testing.T) {
	_, errOut, code := capture(t)
	Check(nil, "nothing happened")
	assert.Equal(t, -1, *code)
	assert.Empty(t, errOut.String())

	Check(errors.New("boom"), "Failed to open database")
	assert.Equal(t, 1, *code)
	assert.Equal(t, "Failed to open database: boom\n", errOut.String())
}
