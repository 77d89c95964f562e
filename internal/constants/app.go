package constants

import (
	"time"
)

// Dataset naming conventions
const (
	// DefaultSubjectPrefix - directory prefix identifying a subject under the dataset root
	DefaultSubjectPrefix = "sub-"

	// DefaultSessionPrefix - directory prefix identifying a session under a subject
	DefaultSessionPrefix = "ses-"

	// DefaultSelectionMarker - base-name marker of the preferred anatomical candidate
	// when a slot has several (bias-corrected T1w images carry "yGC")
	DefaultSelectionMarker = "yGC"

	// SidecarExt - extension of per-acquisition JSON metadata files
	SidecarExt = ".json"
)

// Output layout
const (
	// LogsDirName - directory under the output root holding invocation log files
	LogsDirName = "logs"

	// LogTimestampFormat - timestamp suffix of log files and cluster log dirs
	// (strftime %Y%m%d-%H%M%S)
	LogTimestampFormat = "20060102-150405"

	// ClusterDirSuffix - suffix of the per-driver cluster log directory
	ClusterDirSuffix = "_pbs"

	// SubjectLayout - output layout of subject-grouped drivers
	SubjectLayout = "{subject}"

	// SessionLayout - output layout of session-grouped drivers
	SessionLayout = "{subject}/{session}"
)

// Dispatch
const (
	// DefaultWorkers - default number of concurrently running jobs
	DefaultWorkers = 10

	// MinWorkers - minimum number of workers (sequential mode)
	MinWorkers = 1

	// MaxWorkers - maximum number of workers allowed
	MaxWorkers = 256

	// DefaultClusterQueue - default PBS queue for cluster submissions
	DefaultClusterQueue = "Nspin_long"

	// DefaultContainerRuntime - executable used to run container images
	DefaultContainerRuntime = "singularity"

	// ContainerEntrypoint - program invoked inside the container image
	ContainerEntrypoint = "brainprep"

	// NotRunExitCode - exit code recorded for jobs that never started
	NotRunExitCode = -1

	// ProgressUpdateInterval - interval for progress bar updates (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// DispatchReportInterval - period of the active/completed dispatch log line
	DispatchReportInterval = 30 * time.Second

	// KillGracePeriod - delay between SIGTERM and SIGKILL on cancellation
	KillGracePeriod = 5 * time.Second
)

// Preview
const (
	// PreviewEllipsis - row separating the first and last previewed runs
	PreviewEllipsis = "..."

	// PreviewListSeparator - separator of list values inside a preview cell
	PreviewListSeparator = ","

	// ManifestListSeparator - separator of list values in the manifest CSV export
	ManifestListSeparator = ";"
)
