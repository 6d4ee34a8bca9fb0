package koji

import "context"

// BuildTarget is the result of getBuildTarget.
type BuildTarget struct {
	ID           int    `xmlrpc:"id"`
	Name         string `xmlrpc:"name"`
	BuildTag     int    `xmlrpc:"build_tag"`
	BuildTagName string `xmlrpc:"build_tag_name"`
	DestTag      int    `xmlrpc:"dest_tag"`
	DestTagName  string `xmlrpc:"dest_tag_name"`
}

// BuildInfo is the subset of a koji build record DistroBaker uses.
type BuildInfo struct {
	ID          int    `xmlrpc:"id"`
	BuildID     int    `xmlrpc:"build_id"`
	PackageName string `xmlrpc:"package_name"`
	Name        string `xmlrpc:"name"`
	Version     string `xmlrpc:"version"`
	Release     string `xmlrpc:"release"`
	NVR         string `xmlrpc:"nvr"`
	Source      string `xmlrpc:"source"` // dereferenced SCMURL the build came from
	TagName     string `xmlrpc:"tag_name"`
}

// Hub is the set of koji hub calls DistroBaker needs.
type Hub interface {
	GetBuildTarget(ctx context.Context, name string) (*BuildTarget, error)
	GetBuild(ctx context.Context, id int) (*BuildInfo, error)
	ListTagged(ctx context.Context, tag string, latest bool) ([]BuildInfo, error)
	LatestBuild(ctx context.Context, tag, pkg string) (*BuildInfo, error)
	TagBuild(ctx context.Context, tag, nvr string) (int, error)
	Build(ctx context.Context, src, target string, scratch bool) (int, error)
}

// Side selects the source or destination build system.
type Side string

const (
	Source      Side = "source"
	Destination Side = "destination"
)
