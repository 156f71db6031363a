// Package pagination drives sequential multi-page fetches against the
// upstream news feeds and flattens the pages into one ordered item list.
//
// Two feed shapes are supported:
//
//   - cursor feeds report an authoritative total page count in every
//     response; FeedDriver advances until that count or the caller's
//     MaxPage is reached.
//   - roll feeds report no total; RollDriver walks pages 1..UpperBound and
//     stops at the first empty page or at MaxPage.
//
// Example usage:
//
//	driver := pagination.NewFeedDriver(newsClient, client.DefaultThrottle(logger), logger)
//	out := driver.Run(ctx, query, endpoint)
//	texts, err := pagination.Project(out.Items, "rich_text")
//
// Both drivers:
//   - throttle before every request
//   - fetch exactly one page at a time, pages strictly ascending by 1
//   - treat every fetch or decode failure as a soft stop and return the
//     items gathered so far
//
// Only Project returns an error: a missing field means the upstream schema
// changed and callers must notice.
package pagination
