package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SerialShell/internal/model"
	"SerialShell/internal/response"
)

type fakeDevice struct {
	sent []string
	err  error
}

func (d *fakeDevice) Send(text string) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.sent = append(d.sent, text)
	return len(text), nil
}

func (d *fakeDevice) Identity() string { return "fake0" }

type fakeResponder struct {
	waitErr error
	reply   string
	waits   int
}

func (r *fakeResponder) WaitForCompletion(context.Context) error {
	r.waits++
	return r.waitErr
}

func (r *fakeResponder) DrainOne() (string, error) {
	s := r.reply
	r.reply = ""
	return s, nil
}

type fakeOutput struct{ events []model.Event }

func (o *fakeOutput) Publish(ev model.Event) model.Event {
	o.events = append(o.events, ev)
	return ev
}

func newEnv(term string) (*Env, *fakeDevice, *fakeResponder, *fakeOutput) {
	d, r, o := &fakeDevice{}, &fakeResponder{}, &fakeOutput{}
	return &Env{Device: d, Sync: r, Output: o, Terminator: term}, d, r, o
}

func TestTableResolve(t *testing.T) {
	tbl := NewTable(nil)
	var hit string
	tbl.Add("greet", "greet", func(context.Context, *Env, []string) error { hit = "first"; return nil })
	tbl.Add("greet", "greet", func(context.Context, *Env, []string) error { hit = "second"; return nil })
	tbl.Add("other", "other", nil)

	cmd, ok := tbl.Resolve("greet")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(context.Background(), nil, nil))
	assert.Equal(t, "first", hit)

	_, ok = tbl.Resolve("Greet")
	assert.False(t, ok)
	_, ok = tbl.Resolve("gree")
	assert.False(t, ok)

	names := []string{}
	for _, c := range tbl.Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"greet", "greet", "other"}, names)
}

func TestPinWriteCommands(t *testing.T) {
	tbl := NewTable(nil)
	RegisterPinCommands(tbl)
	env, dev, sync, out := newEnv("")

	cmd, ok := tbl.Resolve("write-digital")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(context.Background(), env, []string{"1", "3"}))

	cmd, ok = tbl.Resolve("write-analog")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(context.Background(), env, []string{"9", "128"}))

	assert.Equal(t, []string{"3 1 3", "2 9 128"}, dev.sent)
	assert.Zero(t, sync.waits)
	assert.Empty(t, out.events)
}

func TestPinReadCommandPublishesReply(t *testing.T) {
	tbl := NewTable(nil)
	RegisterPinCommands(tbl)
	env, dev, sync, out := newEnv("\n")
	sync.reply = "734\r\n"

	cmd, ok := tbl.Resolve("read-analog")
	require.True(t, ok)
	require.NoError(t, cmd.Handler(context.Background(), env, []string{"2"}))

	assert.Equal(t, []string{"0 2\n"}, dev.sent)
	assert.Equal(t, 1, sync.waits)
	require.Len(t, out.events, 1)
	assert.Equal(t, model.KindOutput, out.events[0].Kind)
	assert.Equal(t, "read-analog", out.events[0].Source)
	assert.Equal(t, "734\r\n", out.events[0].Text)
}

func TestPinReadCommandErrors(t *testing.T) {
	tbl := NewTable(nil)
	RegisterPinCommands(tbl)
	cmd, _ := tbl.Resolve("read-digital")

	env, _, sync, out := newEnv("")
	sync.waitErr = response.ErrMaxWait
	err := cmd.Handler(context.Background(), env, []string{"4"})
	assert.ErrorIs(t, err, response.ErrMaxWait)
	assert.ErrorContains(t, err, "no reply from fake0")
	assert.Empty(t, out.events)

	env, _, sync, _ = newEnv("")
	sync.waitErr = context.Canceled
	assert.ErrorIs(t, cmd.Handler(context.Background(), env, []string{"4"}), context.Canceled)

	env, dev, _, _ := newEnv("")
	dev.err = errors.New("unplugged")
	err = cmd.Handler(context.Background(), env, []string{"4"})
	assert.ErrorContains(t, err, `write "1 4"`)
}
