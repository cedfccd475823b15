package main

import (
	"fmt"

	"github.com/chantype/sessio/examples/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
