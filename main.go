package main

import "dicom-object-store/cmd"

func main() {
	cmd.Execute()
}
