package contentcache

import "sort"

// Transforms are pure: the same raw rows always produce the same public
// value, which together with the canonical codec makes cached payloads
// reproducible byte for byte.

func transformItem(r Record) Item {
	return Item{
		ID:          r.ID,
		Slug:        r.Slug,
		Title:       r.Title,
		Summary:     r.Summary,
		Category:    r.Category,
		PublishedAt: r.PublishedAt.UTC(),
	}
}

func transformListing(rows []Record, total, page, pageSize int) Listing {
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = transformItem(r)
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return Listing{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}
}

func transformSlugs(rows []Record) []string {
	slugs := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Slug != "" {
			slugs = append(slugs, r.Slug)
		}
	}
	sort.Strings(slugs)
	return slugs
}

func transformStats(rows []Record) Stats {
	counts := make(map[string]int)
	stats := Stats{Total: len(rows)}
	for _, r := range rows {
		counts[r.Category]++
		published := r.PublishedAt.UTC()
		if published.After(stats.LastPublished) {
			stats.LastPublished = published
		}
	}

	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	stats.ByCategory = make([]CategoryCount, len(categories))
	for i, c := range categories {
		stats.ByCategory[i] = CategoryCount{Category: c, Count: counts[c]}
	}
	return stats
}
