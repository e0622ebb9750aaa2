package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	i := NoopInstallHooks{}
	i.OnResolve(ctx, "PSGallery", "Pester", "5.5.0", nil)
	i.OnDownloadStart(ctx, "Pester", "5.5.0")
	i.OnDownloadComplete(ctx, "Pester", "5.5.0", time.Second, nil)
	i.OnPromote(ctx, "Pester", "5.5.0", "/tmp/Modules/Pester/5.5.0", nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "versions")
	c.OnCacheMiss(ctx, "versions")
	c.OnCacheSet(ctx, "versions", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "www.powershellgallery.com", "/api/v2/FindPackagesById()")
	h.OnResponse(ctx, "GET", "www.powershellgallery.com", "/api/v2/FindPackagesById()", 200, time.Second)
	h.OnError(ctx, "GET", "www.powershellgallery.com", "/api/v2/FindPackagesById()", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Install().(NoopInstallHooks); !ok {
		t.Error("Install() should return NoopInstallHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customInstall := &testInstallHooks{}
	SetInstallHooks(customInstall)
	if Install() != customInstall {
		t.Error("SetInstallHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Install().(NoopInstallHooks); !ok {
		t.Error("Reset() should restore NoopInstallHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testInstallHooks{}
	SetInstallHooks(custom)
	SetInstallHooks(nil)

	if Install() != custom {
		t.Error("SetInstallHooks(nil) should be ignored")
	}

	Reset()
}

type testInstallHooks struct{ NoopInstallHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
