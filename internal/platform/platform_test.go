package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter_SkipsCurrentRoute(t *testing.T) {
	var visited []string
	r := NewRouter(nil, "/dashboard", func(p string) { visited = append(visited, p) })

	r.GoTo("/login")
	r.GoTo("/login")
	r.GoTo("/dashboard")

	assert.Equal(t, []string{"/login", "/dashboard"}, visited)
	assert.Equal(t, "/dashboard", r.Current())
}

func TestFuncAdapters(t *testing.T) {
	var got string
	var sev Severity
	NavigatorFunc(func(p string) { got = p }).GoTo("/x")
	NotifierFunc(func(s Severity, _ string) { sev = s }).Notify(SeverityInfo, "hi")

	assert.Equal(t, "/x", got)
	assert.Equal(t, SeverityInfo, sev)
}
