/*
Package resource holds the typed, parsed form of fetched application
resources.

A Manager is created once per fetch and never mutated afterwards. Three
implementations exist:

  - TemplateManager: a markup document parsed into an x/net/html tree, with
    XPath queries (htmlquery) for script and stylesheet discovery.
  - StyleManager: stylesheet text with relative url() references resolved
    against the stylesheet location.
  - ScriptManager: script source with its declared type.

Decode converts raw response bytes into text using the charset announced by
the server, falling back to chardet detection.
*/
package resource
