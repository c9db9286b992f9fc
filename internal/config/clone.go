// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

// Clone returns an alias-free deep copy of Settings.
// Only reference types (maps/slices/pointers) are cloned; nested structs are copied by value.
func Clone(in Settings) Settings {
	out := in

	out.InstalledApps = cloneStringSlice(in.InstalledApps)
	out.Middleware = cloneStringSlice(in.Middleware)
	out.Security.AllowedHosts = cloneStringSlice(in.Security.AllowedHosts)
	if in.Security.ProxySSLHeader != nil {
		h := *in.Security.ProxySSLHeader
		out.Security.ProxySSLHeader = &h
	}

	out.Templates.Dirs = cloneStringSlice(in.Templates.Dirs)
	out.Templates.ContextProcessors = cloneStringSlice(in.Templates.ContextProcessors)

	out.CORS.OriginWhitelist = cloneStringSlice(in.CORS.OriginWhitelist)
	out.CORS.AllowHeaders = cloneStringSlice(in.CORS.AllowHeaders)

	out.TaskQueue.AcceptContent = cloneStringSlice(in.TaskQueue.AcceptContent)

	// --- Maps (preserve nil) ---
	if in.ChannelLayers != nil {
		out.ChannelLayers = make(map[string]ChannelLayerConfig, len(in.ChannelLayers))
		for alias, layer := range in.ChannelLayers {
			layer.Hosts = cloneHostPorts(layer.Hosts)
			out.ChannelLayers[alias] = layer
		}
	}
	if in.Maps.PointFieldWidget.PlaceAutocomplete.ComponentRestrictions != nil {
		out.Maps.PointFieldWidget.PlaceAutocomplete.ComponentRestrictions =
			cloneStringMap(in.Maps.PointFieldWidget.PlaceAutocomplete.ComponentRestrictions)
	}

	out.REST.AuthenticationClasses = cloneStringSlice(in.REST.AuthenticationClasses)
	out.REST.PermissionClasses = cloneStringSlice(in.REST.PermissionClasses)

	if in.PasswordValidators != nil {
		out.PasswordValidators = make([]PasswordValidatorConfig, len(in.PasswordValidators))
		for i, pv := range in.PasswordValidators {
			pv.UserAttributes = cloneStringSlice(pv.UserAttributes)
			out.PasswordValidators[i] = pv
		}
	}

	out.Logging = cloneLogging(in.Logging)
	return out
}

func cloneLogging(in LoggingConfig) LoggingConfig {
	out := in
	if in.Handlers != nil {
		out.Handlers = make(map[string]HandlerConfig, len(in.Handlers))
		for k, v := range in.Handlers {
			out.Handlers[k] = v
		}
	}
	if in.Loggers != nil {
		out.Loggers = make(map[string]LoggerConfig, len(in.Loggers))
		for k, v := range in.Loggers {
			v.Handlers = cloneStringSlice(v.Handlers)
			out.Loggers[k] = v
		}
	}
	return out
}

func cloneStringSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneHostPorts(in []HostPort) []HostPort {
	if in == nil {
		return nil
	}
	out := make([]HostPort, len(in))
	copy(out, in)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
