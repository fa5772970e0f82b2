package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	Group   = "windowfields.l7mp.io"
	Version = "v1alpha1"

	// SetWindowFieldsKind is the kind of a stage manifest.
	SetWindowFieldsKind = "SetWindowFields"

	// StageName is the name of the window stage in pipeline form.
	StageName = "$setWindowFields"
)

// GroupVersion is the group-version of stage manifests.
var GroupVersion = schema.GroupVersion{Group: Group, Version: Version}

// GroupVersionKind returns the GVK of a stage manifest.
func GroupVersionKind() schema.GroupVersionKind {
	return GroupVersion.WithKind(SetWindowFieldsKind)
}

// IsStageGroupVersionKind checks the apiVersion and kind of a stage manifest.
func IsStageGroupVersionKind(apiVersion, kind string) bool {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return false
	}
	return gv == GroupVersion && kind == SetWindowFieldsKind
}
