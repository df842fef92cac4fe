package common

import (
	"fmt"
	"sort"
	"strings"
)

// OptionArgs converts URI backup options into dump tool flags.
// true or an empty string becomes --name, a string becomes --name=value,
// a list becomes one flag per value and false is dropped. Keys are emitted
// in sorted order so the command line is stable.
func OptionArgs(options map[string]any) []string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var args []string
	for _, key := range keys {
		name := "--" + strings.TrimLeft(key, "-")
		switch value := options[key].(type) {
		case bool:
			if value {
				args = append(args, name)
			}
		case string:
			args = append(args, flag(name, value))
		case []string:
			for _, v := range value {
				args = append(args, flag(name, v))
			}
		case nil:
		default:
			args = append(args, flag(name, fmt.Sprint(value)))
		}
	}

	return args
}

func flag(name, value string) string {
	if value == "" {
		return name
	}
	return name + "=" + value
}

// RedactArgs renders a command line, hiding the value of any --password flag
func RedactArgs(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, arg := range args {
		if strings.HasPrefix(strings.ToLower(arg), "--password=") {
			arg = arg[:len("--password=")] + "***"
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
