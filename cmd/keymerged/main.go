package main

import (
	"github.com/jetkvm/keymerge"
	"github.com/jetkvm/keymerge/internal/utils"
)

func main() {
	utils.SetProcTitle("keymerged")
	keymerge.Main()
}
