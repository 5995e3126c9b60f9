package memcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/memcache/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHighLevel(t *testing.T, executeFn func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error)) (*HighLevelCommands, *fakeRouter) {
	t.Helper()
	router := &fakeRouter{executeFn: executeFn}
	return NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), nil), router
}

func TestHighLevel_Set(t *testing.T) {
	h, router := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		assert.Equal(t, meta.CmdSet, req.Command)
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	ok, err := h.Set(context.Background(), "k", "value", 60)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, router.executeCall, 1)
}

func TestHighLevel_Set_WriteFailureReported(t *testing.T) {
	var reportedKey Key
	var reportedErr error
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			return nil, errors.New("server down")
		},
	}
	h := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), func(key Key, err error) {
		reportedKey, reportedErr = key, err
	})

	_, err := h.Set(context.Background(), "k", "v", 60)
	require.Error(t, err)
	assert.Equal(t, "k", reportedKey.Key)
	assert.Error(t, reportedErr)
}

func TestHighLevel_Refill_NeverReportsWriteFailure(t *testing.T) {
	called := false
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			return nil, errors.New("server down")
		},
	}
	h := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), func(key Key, err error) {
		called = true
	})

	_, err := h.Refill(context.Background(), "k", "v", 60)
	require.Error(t, err)
	assert.False(t, called, "Refill never reports write failures")
}

func TestHighLevel_Delete(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		assert.Equal(t, meta.CmdDelete, req.Command)
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	ok, err := h.Delete(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHighLevel_Delete_MissingKeyIsNotSuccess(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusNF}, nil
	})

	ok, err := h.Delete(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHighLevel_Invalidate_MissingKeyCountsAsSuccess(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusNF}, nil
	})

	ok, err := h.Invalidate(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHighLevel_Touch(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		assert.Equal(t, meta.CmdGet, req.Command)
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	ok, err := h.Touch(context.Background(), "k", 120)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHighLevel_Get_Hit(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return vaResponse([]byte("hello"), false, 0), nil
	})

	var out string
	found, err := h.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out)
}

func TestHighLevel_Get_Miss(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusEN}, nil
	})

	var out string
	found, err := h.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHighLevel_GetCAS(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		resp := vaResponse([]byte("hello"), false, 0)
		resp.Flags = append(resp.Flags, meta.Flag{Type: meta.FlagReturnCAS, Token: "7"})
		return resp, nil
	})

	var out string
	found, cas, err := h.GetCAS(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), cas)
	assert.Equal(t, "hello", out)
}

func TestHighLevel_MultiGet(t *testing.T) {
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			if key.Key == "missing" {
				return &meta.Response{Status: meta.StatusEN}, nil
			}
			return vaResponse([]byte(key.Key+"-value"), false, 0), nil
		},
	}
	h := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), nil)

	keys := []Key{{Key: "a"}, {Key: "missing"}, {Key: "b"}}
	slots := map[string]*string{"a": new(string), "missing": new(string), "b": new(string)}

	found, err := h.MultiGet(context.Background(), keys, func(k Key) any { return slots[k.Key] })
	require.NoError(t, err)

	assert.True(t, found["a"])
	assert.False(t, found["missing"])
	assert.True(t, found["b"])
	assert.Equal(t, "a-value", *slots["a"])
	assert.Equal(t, "b-value", *slots["b"])
}

func TestHighLevel_GetOrLease_WinnerMustPopulate(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		resp := vaResponse([]byte("placeholder"), false, 0)
		resp.Flags = append(resp.Flags, meta.Flag{Type: meta.FlagWin})
		return resp, nil
	})

	policy := LeasePolicy{TTL: 30, MissRetries: 1, MissRetryWait: time.Millisecond, WaitBackoffFactor: 1, MissMaxRetryWait: time.Millisecond}

	var out string
	found, _, err := h.GetOrLease(context.Background(), "k", &out, policy)
	require.NoError(t, err)
	assert.False(t, found, "winning the lease looks like a miss to the caller")
}

func TestHighLevel_GetOrLease_ValueAlreadyPresent(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return vaResponse([]byte("hello"), true, 0), nil
	})

	policy := DefaultLeasePolicy
	policy.MissRetries = 1

	var out string
	found, _, err := h.GetOrLease(context.Background(), "k", &out, policy)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out)
}

func TestHighLevel_GetOrLease_RejectsZeroRetries(t *testing.T) {
	h, _ := newHighLevel(t, nil)

	var out string
	_, _, err := h.GetOrLease(context.Background(), "k", &out, LeasePolicy{})
	require.Error(t, err)
}

func TestHighLevel_Delta(t *testing.T) {
	h, router := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		assert.Equal(t, meta.CmdArithmetic, req.Command)
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	ok, err := h.Delta(context.Background(), "counter", 5)
	require.NoError(t, err)
	assert.True(t, ok)

	req := router.executeCall[0]
	tok, ok2 := meta.Flags(req.Flags).Get(meta.FlagDelta)
	require.True(t, ok2)
	assert.Equal(t, "5", string(tok))
}

func TestHighLevel_Delta_NegativeUsesDecrementMode(t *testing.T) {
	h, router := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	_, err := h.Delta(context.Background(), "counter", -5)
	require.NoError(t, err)

	req := router.executeCall[0]
	tok, ok := meta.Flags(req.Flags).Get(meta.FlagDelta)
	require.True(t, ok)
	assert.Equal(t, "5", string(tok), "delta magnitude is always sent as a positive token")

	mode, ok := meta.Flags(req.Flags).Get(meta.FlagMode)
	require.True(t, ok)
	assert.Equal(t, meta.ModeDecrement, string(mode))
}

func TestHighLevel_DeltaInitialize(t *testing.T) {
	h, router := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusHD}, nil
	})

	ok, err := h.DeltaInitialize(context.Background(), "counter", 1, 10, 60)
	require.NoError(t, err)
	assert.True(t, ok)

	req := router.executeCall[0]
	tok, ok2 := meta.Flags(req.Flags).Get(meta.FlagInitialValue)
	require.True(t, ok2)
	assert.Equal(t, "10", string(tok))
}

func TestHighLevel_DeltaAndGet(t *testing.T) {
	h, _ := newHighLevel(t, func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
		return &meta.Response{Status: meta.StatusVA, Data: []byte("42")}, nil
	})

	n, ok, err := h.DeltaAndGet(context.Background(), "counter", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
}
