package gologger

import (
	"strings"

	"github.com/goliatone/go-feishu/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = core.DefaultServiceName
	}
	return glog.Resolve(name, provider, logger)
}

// Component resolves the logger for one part of the module, named
// "feishu.<component>".
func Component(provider glog.LoggerProvider, logger glog.Logger, component string) glog.Logger {
	resolvedProvider, resolved := Resolve(core.DefaultServiceName, provider, logger)
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" || resolvedProvider == nil {
		return resolved
	}
	named := resolvedProvider.GetLogger(core.DefaultServiceName + "." + component)
	if named == nil {
		return resolved
	}
	return named
}
