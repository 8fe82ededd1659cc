package store

var SheetRange = sheetRange
