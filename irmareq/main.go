package main

import "github.com/privacybydesign/irmarequestor/irmareq/cmd"

func main() {
	cmd.Execute()
}
