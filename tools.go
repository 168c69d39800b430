//go:build tools
// +build tools

package main

import (
	_ "github.com/google/addlicense"
	_ "github.com/mcubik/goverreport"
	_ "github.com/segmentio/golines"
	_ "mvdan.cc/gofumpt"
)
