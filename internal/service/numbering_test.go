package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/dukerupert/resibo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	tests := []struct {
		prefix string
		n      int64
		want   string
	}{
		{"INV", 1, "INV-000001"},
		{"INV", 42, "INV-000042"},
		{"SI", 999999, "SI-999999"},
		{"INV", 1000000, "INV-1000000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatInvoiceNumber(tt.prefix, tt.n))
		})
	}
}

func TestAllocateNextInvoiceNumber(t *testing.T) {
	store := newMemStore("INV", 41)

	var got string
	err := store.InTx(context.Background(), func(tx domain.RecurrenceTx) error {
		var err error
		got, err = AllocateNextInvoiceNumber(context.Background(), tx)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-000042", got)
	assert.Equal(t, int64(42), store.state.last)
}

func TestAllocateNextInvoiceNumber_RollbackReleasesNumber(t *testing.T) {
	store := newMemStore("INV", 7)
	ctx := context.Background()

	err := store.InTx(ctx, func(tx domain.RecurrenceTx) error {
		if _, err := AllocateNextInvoiceNumber(ctx, tx); err != nil {
			return err
		}
		return errors.New("insert failed")
	})
	require.Error(t, err)

	var got string
	require.NoError(t, store.InTx(ctx, func(tx domain.RecurrenceTx) error {
		var err error
		got, err = AllocateNextInvoiceNumber(ctx, tx)
		return err
	}))
	assert.Equal(t, "INV-000008", got)
}

func TestAllocateNextInvoiceNumber_NotInitialized(t *testing.T) {
	store := newMemStore("", 0)
	store.state.counterSet = false

	err := store.InTx(context.Background(), func(tx domain.RecurrenceTx) error {
		_, err := AllocateNextInvoiceNumber(context.Background(), tx)
		return err
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCounterNotInitialized))
	assert.Equal(t, domain.ENOTINIT, domain.ErrorCode(err))
	assert.Equal(t, "numbering.allocate", domain.ErrorOp(err))
}

func TestAllocateNextInvoiceNumber_LockFailure(t *testing.T) {
	store := newMemStore("INV", 0)
	store.failOn = "LockCounter"

	err := store.InTx(context.Background(), func(tx domain.RecurrenceTx) error {
		_, err := AllocateNextInvoiceNumber(context.Background(), tx)
		return err
	})

	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestAllocateNextInvoiceNumber_Concurrent(t *testing.T) {
	const n = 50
	store := newMemStore("INV", 0)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InTx(ctx, func(tx domain.RecurrenceTx) error {
				num, err := AllocateNextInvoiceNumber(ctx, tx)
				if err != nil {
					return err
				}
				mu.Lock()
				numbers = append(numbers, num)
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	sort.Strings(numbers)
	for i, num := range numbers {
		assert.Equal(t, FormatInvoiceNumber("INV", int64(i+1)), num)
	}
}
