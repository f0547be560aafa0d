/*
Package loader fetches application resources and turns them into typed
resource managers.

Every Load goes through three steps:

 1. BeforeLoad observers see the (scope, url) pair.
 2. The loader cache is consulted. Entries are keyed by final URL after
    redirects, with the request URL kept as an alias. Concurrent loads of one
    URL share a single fetch (singleflight).
 3. The raw payload is classified by content type, sniffed MIME type and
    file extension, then threaded through the Loaded waterfall. A callback
    on Loaded is expected to replace LoadedData.Value with a typed manager;
    Classify is the default one.
*/
package loader
