package meta

import (
	"fmt"
	"strings"
)

// CombineAPIPath resolves a queue or action path for in-process dispatch.
// The result is an absolute path without the /api prefix; the call
// emulator adds the prefix when it resolves the URL.
//
//	CombineAPIPath("a-base", "queue/echo")  // "/a/base/queue/echo"
//	CombineAPIPath("a-base", "/b/x/queue")  // "/b/x/queue"
func CombineAPIPath(module, path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	info, ok := ParseInfo(module)
	if !ok {
		return "", fmt.Errorf("invalid module %q for path %q", module, path)
	}
	return "/" + info.URL + "/" + path, nil
}

// CombineFetchPath resolves a path for a real network request.
//
//	CombineFetchPath("a-base", "queue/echo") // "/api/a/base/queue/echo"
//	CombineFetchPath("a-base", "/b/x/y")     // "/api/b/x/y"
//	CombineFetchPath("a-base", "//health")   // "/health"
func CombineFetchPath(module, path string) (string, error) {
	if strings.HasPrefix(path, "//") {
		return path[1:], nil
	}
	if strings.HasPrefix(path, "/") {
		return "/api" + path, nil
	}
	info, ok := ParseInfo(module)
	if !ok {
		return "", fmt.Errorf("invalid module %q for path %q", module, path)
	}
	return apiPrefix + info.URL + "/" + path, nil
}

// MockURL builds the absolute API URL of a module-relative path, the way
// tests address a module's own endpoints.
//
//	MockURL("a-base", "kv/get") // "/api/a/base/kv/get"
//	MockURL("a-base", "/b/x/y") // "/api/b/x/y"
//	MockURL("a-base", "")       // "/api/a/base/"
func MockURL(module, url string) (string, error) {
	if strings.HasPrefix(url, "/") {
		return "/api" + url, nil
	}
	info, ok := ParseInfo(module)
	if !ok {
		return "", fmt.Errorf("invalid module %q", module)
	}
	return apiPrefix + info.URL + "/" + url, nil
}
