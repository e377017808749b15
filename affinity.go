package visnav

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCPUSetting is returned when a cpu affinity setting can not be
// parsed
var ErrInvalidCPUSetting = errors.New("invalid cpu setting")

// CoreType specifies the CPU core type of a big.LITTLE host
type CoreType int

const (
	FastCores CoreType = 0
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// coreMaskList defines the CPU core masks of known single board computers
// by platform name
var coreMaskList = map[string]map[CoreType]uintptr{
	"rk3588": {
		SlowCores: 0b00001111,
		FastCores: 0b11110000,
		AllCores:  0b11111111,
	},
	"rk3576": {
		SlowCores: 0b00001111,
		FastCores: 0b11110000,
		AllCores:  0b11111111,
	},
	"rk3566": {
		SlowCores: 0b00001111,
		FastCores: 0b00001111,
		AllCores:  0b00001111,
	},
	"bcm2711": {
		SlowCores: 0b00001111,
		FastCores: 0b00001111,
		AllCores:  0b00001111,
	},
	"bcm2712": {
		SlowCores: 0b00001111,
		FastCores: 0b00001111,
		AllCores:  0b00001111,
	},
}

// coreTypes maps the core type suffix of a platform setting
var coreTypes = map[string]CoreType{
	"fast": FastCores,
	"slow": SlowCores,
	"all":  AllCores,
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// ParseCPUMask converts a core setting into an affinity mask.  The setting
// is either a platform and core type, eg: "rk3588:fast", or a list of core
// numbers and ranges, eg: "4-7" or "0,2,4"
func ParseCPUMask(setting string) (uintptr, error) {

	setting = strings.ToLower(strings.TrimSpace(setting))

	if setting == "" {
		return 0, ErrInvalidCPUSetting
	}

	if platform, kind, ok := strings.Cut(setting, ":"); ok {
		masks, ok := coreMaskList[platform]

		if !ok {
			return 0, fmt.Errorf("%w: unknown platform %q",
				ErrInvalidCPUSetting, platform)
		}

		ct, ok := coreTypes[kind]

		if !ok {
			return 0, fmt.Errorf("%w: unknown core type %q",
				ErrInvalidCPUSetting, kind)
		}

		return masks[ct], nil
	}

	var cores []int

	for _, part := range strings.Split(setting, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")

		first, err := parseCore(lo)

		if err != nil {
			return 0, err
		}

		last := first

		if isRange {
			if last, err = parseCore(hi); err != nil {
				return 0, err
			}
		}

		if last < first {
			return 0, fmt.Errorf("%w: invalid core range %q",
				ErrInvalidCPUSetting, part)
		}

		for c := first; c <= last; c++ {
			cores = append(cores, c)
		}
	}

	return CPUCoreMask(cores), nil
}

func parseCore(s string) (int, error) {

	core, err := strconv.Atoi(strings.TrimSpace(s))

	if err != nil || core < 0 || core >= strconv.IntSize {
		return 0, fmt.Errorf("%w: invalid core number %q",
			ErrInvalidCPUSetting, s)
	}

	return core, nil
}
