package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/dspfit/pkg/support/fsutil"
	"github.com/gomlx/dspfit/pkg/support/params"
	"github.com/pkg/errors"
)

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in `p`. The default values are also used to set the type to which the
// string values will be parsed to.
//
// It updates `p` accordingly and returns the list of parameters set, or an error in case a parameter
// is unknown or the parsing failed.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// A setting "file:<path>" reads the settings from the file, one or more per line. Lines starting
// with "#" are comments.
//
// Example usage:
//
//	func main() {
//		p := fit.DefaultParams()
//		settings := commandline.CreateSettingsFlag(p, nil, "")
//		flag.Parse()
//		paramsSet, err := commandline.ParseSettings(p, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(commandline.SprintModifiedSettings(p, paramsSet))
//		...
//	}
func ParseSettings(p *params.Params, settings string) (paramsSet []string, err error) {
	settingsList := strings.Split(settings, ";")
	for _, setting := range settingsList {
		paramsSet, err = parseSetting(p, setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(p *params.Params, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		// Read parameters from a file.
		filePath := strings.TrimPrefix(setting, "file:")
		filePath, err = fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		lines := strings.Split(string(contents), "\n")
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			settings := strings.Split(line, ";")
			for _, setting := range settings {
				newParamsSet, err = parseSetting(p, setting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	parts := strings.Split(setting, "=")
	if len(parts) != 2 {
		err = errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\", got %q",
			setting, setting)
		return
	}
	paramName, valueStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	value, found := p.GetParam(paramName)
	if !found {
		err = errors.Errorf("can't set parameter %q because it is not known, see -help for the list of parameters",
			paramName)
		return
	}

	// Parse value accordingly.
	switch v := value.(type) {
	case int:
		valueStr = strings.ReplaceAll(valueStr, "_", "")
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case int64:
		valueStr = strings.ReplaceAll(valueStr, "_", "")
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case float64:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case bool:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case string:
		value = valueStr
	default:
		err = fmt.Errorf("don't know how to parse type %T for setting parameter %q", value, setting)
	}
	if err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)", valueStr, paramName, value)
		return
	}
	p.SetParam(paramName, value)
	newParamsSet = append(newParamsSet, paramName)
	return
}

// CreateSettingsFlag create a string flag in fs with the given flagName (if empty it will be named
// "set") and with a description of the current defined parameters in `p`.
// If fs is nil, flag.CommandLine is used.
//
// The flag should be created before the call to `fs.Parse()`.
func CreateSettingsFlag(p *params.Params, fs *flag.FlagSet, flagName string) *string {
	if fs == nil {
		fs = flag.CommandLine
	}
	if flagName == "" {
		flagName = "set"
	}
	var parts []string
	parts = append(parts,
		`Set hyperparameters of the fit. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`It can also be given an entry like: "file:settings_file.txt", in `+
			`which case the file will be read and the settings will be parsed, `+
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. `+
			`Current available parameters that can be set:`)
	p.EnumerateParams(func(key string, value any) {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, value))
	})
	usage := strings.Join(parts, "\n")
	var settings string
	fs.StringVar(&settings, flagName, "", usage)
	return &settings
}

// SprintSettings pretty-print values for the current hyperparameters settings into a string.
func SprintSettings(p *params.Params) string {
	var parts []string
	p.EnumerateParams(func(key string, value any) {
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", key, value, value))
	})
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-print the values of the parameters in paramsSet, as returned by ParseSettings.
func SprintModifiedSettings(p *params.Params, paramsSet []string) string {
	var parts []string
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	paramsSet = slices.Compact(paramsSet)
	for _, paramName := range paramsSet {
		value, found := p.GetParam(paramName)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", paramName, value, value))
	}
	return strings.Join(parts, "\n")
}
