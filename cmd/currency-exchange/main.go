package main

import "github.com/letrung1998vn/currency-exchange/internal/cli"

func main() {
	cli.Execute()
}
