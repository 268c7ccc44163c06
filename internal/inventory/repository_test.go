package inventory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapWriteError(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{code: "23505", want: ErrDuplicateSKU},
		{code: "23503", want: ErrCategoryNotFound},
		{code: "23514", want: ErrInvalidProduct},
		{code: "22003", want: ErrInvalidProduct},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := mapWriteError(fmt.Errorf("insert product: %w", &pgconn.PgError{Code: tc.code}))
			require.ErrorIs(t, err, tc.want)
		})
	}

	base := errors.New("connection reset")
	require.Same(t, base, mapWriteError(base))
}
