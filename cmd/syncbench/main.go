package main

import "syncbench/internal/app"

func main() {
	app.Main()
}
