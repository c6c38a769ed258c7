package engine

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/ashita-ai/prism/internal/model"
	"github.com/ashita-ai/prism/internal/provider"
)

var (
	runtimeOnce sync.Once
	runtimeInfo model.RuntimeInfo
)

// processRuntime describes the running binary. The commit comes from the
// VCS stamp embedded at build time and is nil for unstamped builds.
func processRuntime() model.RuntimeInfo {
	runtimeOnce.Do(func() {
		runtimeInfo = model.RuntimeInfo{
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				rev := s.Value
				runtimeInfo.GitCommit = &rev
			}
		}
	})
	return runtimeInfo
}

// providerRuntime records how the provider serving one model was configured.
// Providers without network settings report the per-model timeout only.
func providerRuntime(p provider.Provider, d model.ModelDescriptor, params model.EvaluateParams) model.ProviderRuntime {
	info := model.ProviderRuntimeInfo{
		TimeoutS:    params.TimeoutS,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	if rr, ok := p.(provider.RuntimeReporter); ok {
		rt := rr.Runtime()
		if rt.BaseURL != "" {
			info.BaseURL = &rt.BaseURL
		}
		if rt.Timeout > 0 {
			info.TimeoutS = rt.Timeout.Seconds()
		}
		info.Retries = rt.Retries
	}
	return model.ProviderRuntime{ProviderName: d.Provider, ModelID: d.ID, Runtime: info}
}
