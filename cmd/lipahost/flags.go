package main

import (
	"strconv"
)

// optionalFloat is a float32 flag that records whether it was given.
type optionalFloat struct {
	value float32
	set   bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(float64(f.value), 'g', -1, 32)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	f.value = float32(v)
	f.set = true
	return nil
}

// optionalString is a string flag that records whether it was given, so an
// explicit empty value is still a request.
type optionalString struct {
	value string
	set   bool
}

func (f *optionalString) String() string {
	return f.value
}

func (f *optionalString) Set(s string) error {
	f.value = s
	f.set = true
	return nil
}
