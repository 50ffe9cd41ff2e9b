// Package clickhouse is the ClickHouse side of chcommon: an HTTP query
// client with templated statements, and loaders for the server, users and
// Keeper configuration files.
//
// Queries run under [chcommon.ClickHouseQuery] unless another policy is
// given, so only connection failures are retried. Statements passed with
// [Args] are rendered first; the templates can call version_ge,
// format_str_match and format_str_imatch.
//
// Configuration files are read through an afero.Fs into
// [document.Document] values and can be dumped back as XML or YAML with
// secrets masked.
package clickhouse
