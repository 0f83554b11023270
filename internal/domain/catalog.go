package domain

import "fmt"

// Catalog 是"每章节数固定"的不可变目录表。
//
// 不变量（实现必须遵守）：
// - counts 在构造后不再变化；所有地址计算只依赖该表
// - prefix[i] 等于前 i 章的节数之和；GlobalIndex 由此推导
// - (surah, verse) 到全局序号的映射是稠密双射：每次进程启动都以
//   同一张表重新构造，因此"断点续传"不需要任何额外账本
type Catalog struct {
	counts []int
	prefix []int
}

// NewCatalog 用每章节数构造目录表。每项必须 >= 1。
func NewCatalog(counts []int) (Catalog, error) {
	if len(counts) == 0 {
		return Catalog{}, fmt.Errorf("目录表不能为空")
	}
	cs := make([]int, len(counts))
	copy(cs, counts)

	prefix := make([]int, len(cs)+1)
	for i, n := range cs {
		if n < 1 {
			return Catalog{}, fmt.Errorf("第 %d 章节数非法：%d", i+1, n)
		}
		prefix[i+1] = prefix[i] + n
	}
	return Catalog{counts: cs, prefix: prefix}, nil
}

// Surahs 返回章数。
func (c Catalog) Surahs() int { return len(c.counts) }

// TotalVerses 返回全目录的节总数（全局序号空间 1..N）。
func (c Catalog) TotalVerses() int { return c.prefix[len(c.counts)] }

// VerseCount 返回第 surah 章（1 起）的节数。
// 越界是编程错误（调用方只应传入自己从 Catalog 生成的值）：直接 panic。
func (c Catalog) VerseCount(surah int) int {
	if surah < 1 || surah > len(c.counts) {
		panic(fmt.Sprintf("surah 越界：%d（范围 [1,%d]）", surah, len(c.counts)))
	}
	return c.counts[surah-1]
}

// GlobalIndex 把 (surah, verse)（均 1 起）映射为全局序号（1..TotalVerses）。
// 纯函数：相同输入恒得相同输出，这是"磁盘文件即完成账本"成立的前提。
func (c Catalog) GlobalIndex(surah, verse int) int {
	n := c.VerseCount(surah)
	if verse < 1 || verse > n {
		panic(fmt.Sprintf("verse 越界：%d（surah=%d 范围 [1,%d]）", verse, surah, n))
	}
	return c.prefix[surah-1] + verse
}

// quranVerseCounts 是 114 章的节数（全集 6236 节）。
var quranVerseCounts = []int{
	7, 286, 200, 176, 120, 165, 206, 75, 129, 109,
	123, 111, 43, 52, 99, 128, 111, 110, 98, 135,
	112, 78, 118, 64, 77, 227, 93, 88, 69, 60,
	34, 30, 73, 54, 45, 83, 182, 88, 75, 85,
	54, 53, 89, 59, 37, 35, 38, 29, 18, 45,
	60, 49, 62, 55, 78, 96, 29, 22, 24, 13,
	14, 11, 11, 18, 12, 12, 30, 52, 52, 44,
	28, 28, 20, 56, 40, 31, 50, 40, 46, 42,
	29, 19, 36, 25, 22, 17, 19, 26, 30, 20,
	15, 21, 11, 8, 8, 19, 5, 8, 8, 11,
	11, 8, 3, 9, 5, 4, 7, 3, 6, 3,
	5, 4, 5, 6,
}

var quranCatalog = mustCatalog(quranVerseCounts)

func mustCatalog(counts []int) Catalog {
	c, err := NewCatalog(counts)
	if err != nil {
		panic(err)
	}
	return c
}

// Quran 返回标准目录表（进程启动时构造一次，之后只读）。
func Quran() Catalog { return quranCatalog }
