/*
Package hooks provides ordered, named interception points.

Three disciplines are offered:

  - SyncHook: every callback runs in registration order, results ignored.
  - AsyncHook: callbacks run one at a time and may halt the chain by
    returning Stop (or an error); the halt outcome is returned to the caller.
  - WaterfallHook: each callback receives the previous callback's result and
    may replace it.

Registry tracks installed plugins by pointer identity so that installing the
same plugin twice is reported and ignored.
*/
package hooks
