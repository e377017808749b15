package visnav

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestCPUCoreMask(t *testing.T) {
	assert.Equal(t, uintptr(0b11110000), CPUCoreMask([]int{4, 5, 6, 7}))
	assert.Equal(t, uintptr(0), CPUCoreMask(nil))
}

func TestParseCPUMask(t *testing.T) {

	tests := []struct {
		setting string
		want    uintptr
		wantErr bool
	}{
		{"rk3588:fast", 0b11110000, false},
		{"RK3588:slow", 0b00001111, false},
		{"bcm2712:all", 0b00001111, false},
		{"4-7", 0b11110000, false},
		{"0,2,4", 0b00010101, false},
		{"0, 4-5", 0b00110001, false},
		{"", 0, true},
		{"rk9999:fast", 0, true},
		{"rk3588:medium", 0, true},
		{"7-4", 0, true},
		{"a", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCPUMask(tt.setting)

		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidCPUSetting, tt.setting)
			continue
		}

		assert.NoError(t, err, tt.setting)
		assert.Equal(t, tt.want, got, tt.setting)
	}
}
