package seat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeat(t *testing.T) {
	s := NewSeat("program-1", "category-1", 3, 12, 8000)

	assert.Equal(t, "program-1", s.ProgramID)
	assert.Equal(t, "category-1", s.CategoryID)
	assert.Equal(t, 3, s.RowNum)
	assert.Equal(t, 12, s.ColNum)
	assert.Equal(t, int64(8000), s.Price)
	assert.Equal(t, StatusNoSold, s.Status)
	assert.Equal(t, 0, s.Version)
}

func TestSeat_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		to       Status
		expected bool
	}{
		{"未販売→確保中", StatusNoSold, StatusLocked, true},
		{"確保中→販売済み", StatusLocked, StatusSold, true},
		{"確保中→未販売", StatusLocked, StatusNoSold, true},
		{"販売済み→未販売", StatusSold, StatusNoSold, true},
		{"未販売→販売済みは不可", StatusNoSold, StatusSold, false},
		{"販売済み→確保中は不可", StatusSold, StatusLocked, false},
		{"未販売→未販売は不可", StatusNoSold, StatusNoSold, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Seat{Status: tt.from}
			assert.Equal(t, tt.expected, s.CanTransitionTo(tt.to))
		})
	}
}

func TestSeat_TransitionTo(t *testing.T) {
	t.Run("許可された遷移は成功する", func(t *testing.T) {
		s := NewSeat("program-1", "category-1", 1, 1, 5000)

		err := s.TransitionTo(StatusLocked)
		require.NoError(t, err)
		assert.Equal(t, StatusLocked, s.Status)

		err = s.TransitionTo(StatusSold)
		require.NoError(t, err)
		assert.Equal(t, StatusSold, s.Status)
	})

	t.Run("未販売から直接販売済みには遷移できない", func(t *testing.T) {
		s := NewSeat("program-1", "category-1", 1, 1, 5000)

		err := s.TransitionTo(StatusSold)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusNoSold, s.Status)
	})
}

func TestSeat_IsAvailable(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"未販売", StatusNoSold, true},
		{"確保中", StatusLocked, false},
		{"販売済み", StatusSold, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Seat{Status: tt.status}
			assert.Equal(t, tt.expected, s.IsAvailable())
		})
	}
}

func TestSeat_Validate(t *testing.T) {
	tests := []struct {
		name    string
		seat    *Seat
		wantErr error
	}{
		{"正常な座席", NewSeat("p-1", "c-1", 1, 1, 5000), nil},
		{"公演IDなし", NewSeat("", "c-1", 1, 1, 5000), ErrProgramIDRequired},
		{"チケット種別IDなし", NewSeat("p-1", "", 1, 1, 5000), ErrCategoryIDRequired},
		{"行番号が0", NewSeat("p-1", "c-1", 0, 1, 5000), ErrInvalidCoordinate},
		{"負の価格", NewSeat("p-1", "c-1", 1, 1, -1), ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seat.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSeat_MarshalUnmarshal(t *testing.T) {
	s := NewSeat("program-1", "category-1", 2, 7, 12000)
	s.ID = "seat-42"

	data, err := s.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s.ID, decoded.ID)
	assert.Equal(t, s.Status, decoded.Status)
	assert.Equal(t, s.RowNum, decoded.RowNum)
	assert.Equal(t, s.ColNum, decoded.ColNum)
	assert.Equal(t, s.Price, decoded.Price)
}
