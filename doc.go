// Package archtree reads archives and presents their flat entry list as a tree.
//
// An archive is decoded into an ordered list of [RawEntry] values by [ReadEntries]. [Build]
// turns that list into a [Tree]: every directory implied by an entry path exists exactly once,
// directories carry the recursive sizes of their descendant files, and siblings are sorted with
// directories first. The tree is indexed twice, by directory path ([Tree.Folder]) and by file
// path ([Tree.File]).
//
// [Open] and [OpenFile] combine both steps into an [Archive], which can additionally extract
// entries to a [Target] and append files to zip archives.
//
// Configuration is done using the [Config], which is a configuration struct that can be used to
// set the archive type, the logger, the telemetry hook, the limits and the sort order. Telemetry
// data is captured for every operation and handed to the [TelemetryHook].
package archtree
