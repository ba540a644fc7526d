package main

import "github.com/Eiffelllll/Activiti/cmd"

func main() {
	cmd.Execute()
}
