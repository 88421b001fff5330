//go:build nocharts

package charts

// Default returns the renderer compiled into this build.
func Default() Renderer { return Disabled{} }
