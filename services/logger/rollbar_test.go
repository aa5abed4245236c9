package logsvc

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/user"
)

func newTestLogger() *RollbarLogger {
	return NewRollbarLogger(log.New(ioutil.Discard, "", 0), core.NewTestConfig())
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := newTestLogger()
	bursar := user.User{ID: "u-1", Username: "jane", Email: "jane@example.com", Roles: []string{user.RoleBursar}}
	admin := user.User{ID: "u-2", Username: "joe", Roles: []string{user.RoleAdmin}}
	extras := map[string]interface{}{"receipt_no": "RCT/AY-2025-26/000001"}

	t.Run("no user", func(t *testing.T) {
		args := l.prepare("payment collected", []interface{}{extras})
		assert.Equal(t, []interface{}{"payment collected", extras}, args)
	})

	t.Run("first user wins", func(t *testing.T) {
		args := l.prepare("payment collected", []interface{}{extras, bursar, admin})
		require.Len(t, args, 3)
		assert.Equal(t, extras, args[1])

		ctx, ok := args[2].(context.Context)
		require.True(t, ok, "args[2] = %T; want a context", args[2])
		person, ok := rollbar.PersonFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, &rollbar.Person{Id: "u-1", Username: "jane", Email: "jane@example.com"}, person)
	})
}

func TestRollbarLogger_Concurrent(t *testing.T) {
	l := newTestLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			usr := user.User{ID: fmt.Sprintf("u-%d", i), Username: fmt.Sprintf("user%d", i), Roles: []string{user.RoleBursar}}
			l.Info("payment collected", usr)
			l.Warn("write conflict, retrying", usr, map[string]interface{}{"attempt": i})
			l.Error("sending receipt", errors.New("smtp down"), usr)
		}(i)
	}
	wg.Wait()
	l.Wait()
}
