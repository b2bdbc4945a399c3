// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request grammar keys
const (
	commandHeight = "height"

	subcommandConst   = "const"
	subcommandPercent = "percent"
	subcommandMove    = "move"
	subcommandPreset  = "preset"

	moveDuration  = "duration"
	moveDirection = "direction"
)

// Parse decodes an untyped request into a Command.
//
// The request must be a mapping with exactly one key naming the command,
// whose value is a mapping with exactly one key naming the subcommand:
//
//	{"height": {"const": 300}}
//	{"height": {"percent": 40}}
//	{"height": {"move": {"duration": 2000, "direction": "up"}}}
//	{"height": {"preset": 2}}
//
// Every failure is a *ParseError.
func Parse(req interface{}) (Command, error) {
	command, value, err := singleEntry(req, "request")
	if err != nil {
		return nil, err
	}
	if command != commandHeight {
		return nil, parseErrorf(BadCommand, "unknown command %q", command)
	}

	subcommand, arg, err := singleEntry(value, "height command")
	if err != nil {
		return nil, err
	}

	switch subcommand {
	case subcommandConst:
		raw, err := uint16Argument(arg, subcommandConst)
		if err != nil {
			return nil, err
		}
		return SetHeightConst{RawHeight: raw}, nil

	case subcommandPercent:
		percent, err := intArgument(arg, subcommandPercent)
		if err != nil {
			n, ok := saturatedInt(arg)
			if !ok {
				return nil, err
			}
			percent = n
		}
		// Oversize integers stay out of range for the controller to reject
		switch {
		case percent > math.MaxInt:
			percent = math.MaxInt
		case percent < math.MinInt:
			percent = math.MinInt
		}
		return SetHeightPercent{Percent: int(percent)}, nil

	case subcommandMove:
		return parseMove(arg)

	case subcommandPreset:
		id, err := uint16Argument(arg, subcommandPreset)
		if err != nil {
			return nil, err
		}
		return SetHeightPreset{PresetID: id}, nil

	default:
		return nil, parseErrorf(BadSubcommand, "unknown subcommand %q", subcommand)
	}
}

func parseMove(arg interface{}) (Command, error) {
	m, ok := arg.(map[string]interface{})
	if !ok {
		return nil, parseErrorf(InvalidArgument, "move expects a mapping, got %s", describe(arg))
	}

	rawDuration, ok := m[moveDuration]
	if !ok {
		return nil, parseErrorf(InvalidArgument, "move is missing %q", moveDuration)
	}
	duration, err := uint16Argument(rawDuration, moveDuration)
	if err != nil {
		return nil, err
	}

	rawDirection, ok := m[moveDirection]
	if !ok {
		return nil, parseErrorf(InvalidArgument, "move is missing %q", moveDirection)
	}
	s, ok := rawDirection.(string)
	if !ok {
		return nil, parseErrorf(InvalidArgument, "direction must be a string, got %s", describe(rawDirection))
	}
	dir, ok := ParseDirection(s)
	if !ok {
		return nil, parseErrorf(InvalidArgument, "direction must be \"up\" or \"down\", got %q", s)
	}

	return MoveHeight{DurationMs: duration, Direction: dir}, nil
}

// singleEntry unpacks a mapping that must hold exactly one key
func singleEntry(v interface{}, what string) (string, interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", nil, parseErrorf(Malformed, "%s must be a mapping, got %s", what, describe(v))
	}
	if len(m) != 1 {
		return "", nil, parseErrorf(Malformed, "%s must have exactly one key, got %d", what, len(m))
	}
	for k, val := range m {
		return k, val, nil
	}
	panic("unreachable")
}

func uint16Argument(v interface{}, name string) (uint16, error) {
	n, err := intArgument(v, name)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint16 {
		return 0, parseErrorf(InvalidArgument, "%s %d is outside 0..%d", name, n, math.MaxUint16)
	}
	return uint16(n), nil
}

// intArgument coerces decoded JSON, CBOR or Go values to an integer.
// Fractional numbers and booleans are rejected rather than truncated.
func intArgument(v interface{}, name string) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uintArgument(uint64(val), name)
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return uintArgument(val, name)
	case float32:
		return floatArgument(float64(val), name)
	case float64:
		return floatArgument(val, name)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return 0, parseErrorf(InvalidArgument, "%s %q is not an integer", name, val.String())
		}
		return floatArgument(f, name)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, parseErrorf(InvalidArgument, "%s %q is not an integer", name, val)
		}
		return n, nil
	default:
		return 0, parseErrorf(InvalidArgument, "%s must be an integer, got %s", name, describe(v))
	}
}

func uintArgument(v uint64, name string) (int64, error) {
	if v > math.MaxInt64 {
		return 0, parseErrorf(InvalidArgument, "%s %d is too large", name, v)
	}
	return int64(v), nil
}

func floatArgument(f float64, name string) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, parseErrorf(InvalidArgument, "%s %v is not an integer", name, f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, parseErrorf(InvalidArgument, "%s %v is too large", name, f)
	}
	return int64(f), nil
}

// saturatedInt clamps an integral value too large for int64 to the nearest
// int64 bound. It reports false for anything that is not an integer.
func saturatedInt(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case uint:
		return math.MaxInt64, uint64(val) > math.MaxInt64
	case uint64:
		return math.MaxInt64, val > math.MaxInt64
	case float32:
		return saturatedFloat(float64(val))
	case float64:
		return saturatedFloat(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
		return saturatedFloat(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return n, true
		}
	}
	return 0, false
}

func saturatedFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64, true
	}
	if f < math.MinInt64 {
		return math.MinInt64, true
	}
	return 0, false
}

func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]interface{}:
		return "mapping"
	case []interface{}:
		return "list"
	case float64, float32, json.Number, int, int64, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
