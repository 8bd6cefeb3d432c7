// Package quickmod defines the mod descriptor model shared by the store, the
// resolver and the install orchestrator.
//
// # Descriptors
//
// A [Mod] is identified by its [UID]. It declares references to other mods as
// a map from referenced uid to the locator (URL) the referenced descriptor is
// fetched from, and zero or more downloadable [Version] entries.
//
// A descriptor is either a stub (only the uid and some local metadata are
// known, see [NewStub]) or a fully parsed descriptor obtained with [Parse].
//
// # Persisted format
//
// Descriptors are stored one file per uid ([Filename]) as JSON:
//
//	{
//	  "uid": "mezz.jei",
//	  "name": "Just Enough Items",
//	  "modId": "JEI",
//	  "websiteUrl": "https://example.com/jei",
//	  "description": "Item and recipe viewer",
//	  "updateUrl": "https://example.com/quickmods/jei.json",
//	  "stub": false,
//	  "type": "forgeMod",
//	  "references": {"forge": "https://example.com/quickmods/forge.json"},
//	  "versions": [
//	    {"name": "1.6.1", "mcCompat": ["1.7.10"], "downloadType": "direct", "url": "https://example.com/jei-1.6.1.jar"}
//	  ]
//	}
//
// [SchemaJSON] returns the JSON schema generated from these types; [Parse]
// validates every payload against it before decoding.
//
// Index payloads ({"IsIndex": true, "<name>": "<locator>", ...}) list further
// descriptor locators and are recognized by [ParseIndex].
package quickmod
