package main

import (
	"github.com/LeNguyenHoangNhan/circuitpython/cmd/sleepsim/cmd"
)

func main() {
	cmd.Execute()
}
