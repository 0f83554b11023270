package domain

import "testing"

func TestQuran_Totals(t *testing.T) {
	c := Quran()
	if c.Surahs() != 114 {
		t.Fatalf("期望 114 章，实际 %d", c.Surahs())
	}
	if c.TotalVerses() != 6236 {
		t.Fatalf("期望 6236 节，实际 %d", c.TotalVerses())
	}
	if c.VerseCount(1) != 7 {
		t.Fatalf("第 1 章期望 7 节，实际 %d", c.VerseCount(1))
	}
	if c.VerseCount(2) != 286 {
		t.Fatalf("第 2 章期望 286 节，实际 %d", c.VerseCount(2))
	}
	if c.VerseCount(114) != 6 {
		t.Fatalf("第 114 章期望 6 节，实际 %d", c.VerseCount(114))
	}
}

func TestGlobalIndex_DenseBijection(t *testing.T) {
	// 全局序号必须是 1..N 的稠密双射：章内随节号严格递增，
	// 下一章首节等于上一章末节 + 1。
	c := Quran()
	next := 1
	for surah := 1; surah <= c.Surahs(); surah++ {
		for verse := 1; verse <= c.VerseCount(surah); verse++ {
			got := c.GlobalIndex(surah, verse)
			if got != next {
				t.Fatalf("(%d,%d) 期望全局序号 %d，实际 %d", surah, verse, next, got)
			}
			next++
		}
	}
	if next-1 != c.TotalVerses() {
		t.Fatalf("遍历总数 %d 与 TotalVerses %d 不一致", next-1, c.TotalVerses())
	}
}

func TestNewCatalog_SmallTable(t *testing.T) {
	c, err := NewCatalog([]int{3, 2})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.TotalVerses() != 5 {
		t.Fatalf("期望 5 节，实际 %d", c.TotalVerses())
	}
	want := map[[2]int]int{
		{1, 1}: 1, {1, 2}: 2, {1, 3}: 3,
		{2, 1}: 4, {2, 2}: 5,
	}
	for k, v := range want {
		if got := c.GlobalIndex(k[0], k[1]); got != v {
			t.Fatalf("(%d,%d) 期望 %d，实际 %d", k[0], k[1], v, got)
		}
	}
}

func TestNewCatalog_Invalid(t *testing.T) {
	if _, err := NewCatalog(nil); err == nil {
		t.Fatalf("空表期望错误，但得到 nil")
	}
	if _, err := NewCatalog([]int{3, 0}); err == nil {
		t.Fatalf("节数为 0 期望错误，但得到 nil")
	}
}

func TestGlobalIndex_OutOfRangePanics(t *testing.T) {
	c := Quran()
	mustPanic(t, func() { c.GlobalIndex(0, 1) })
	mustPanic(t, func() { c.GlobalIndex(115, 1) })
	mustPanic(t, func() { c.GlobalIndex(1, 0) })
	mustPanic(t, func() { c.GlobalIndex(1, 8) })
}

func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("期望 panic，但正常返回")
		}
	}()
	fn()
}
