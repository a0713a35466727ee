package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var statusTitler = cases.Title(language.Und)

// statusLabel renders a stored status value for table output.
func statusLabel(status string) string {
	return statusTitler.String(strings.ReplaceAll(status, "-", " "))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
