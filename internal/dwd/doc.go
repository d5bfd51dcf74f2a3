// Package dwd turns Home Assistant DWD warning entities into card data.
//
// The four operations here (Decode, ResolveSecondary, ShouldRecompute and
// EstimateSize) are pure functions over a snapshot passed in by the caller.
// They never return errors for missing live data; absent entities, absent
// attributes and malformed counts all degrade to empty or default values.
// The only hard failure is CardConfig.Validate rejecting a card without a
// primary source id.
package dwd
