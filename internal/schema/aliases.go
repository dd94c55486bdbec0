package schema

// Key is the canonical name of a logical column, independent of the literal
// header text found in the spreadsheet.
type Key string

// Canonical keys in declaration order.
const (
	KeyID           Key = "_id"
	KeyNum          Key = "num"
	KeyEdicion      Key = "edicion"
	KeyAnio         Key = "anio"
	KeyNombre       Key = "nombre"
	KeyTipo         Key = "tipo"
	KeyAtributo     Key = "atributo"
	KeyNivel        Key = "nivel"
	KeySubtipo      Key = "subtipo"
	KeyEvolucionaDe Key = "evoluciona_de"
	KeyEvolucionaA  Key = "evoluciona_a"
	KeyCantidad     Key = "cantidad"
	KeyIdioma       Key = "idioma"
	KeyPrecio       Key = "precio"
	KeyFechaCompra  Key = "fecha_compra"
	KeyNotas        Key = "notas"
	KeyImagenURL    Key = "imagenurl"
)

// Column pairs a canonical key with the header texts it may appear as.
type Column struct {
	Key     Key
	Aliases []string
}

// AliasTable is an ordered list of columns. Order matters: keys are resolved
// one after another and more than one key may claim the same position.
type AliasTable []Column

// HeaderAliases maps spreadsheet header text to canonical keys.
var HeaderAliases = AliasTable{
	{KeyID, []string{"_id", "id", "uuid", "uid"}},
	{KeyNum, []string{"#", "num", "numero", "número", "no", "nº"}},
	{KeyEdicion, []string{"set", "edicion", "edición", "expansion", "expansión", "coleccion", "colección"}},
	{KeyAnio, []string{"año", "anio", "year"}},
	{KeyNombre, []string{"nombre", "name", "card name", "cardname", "nombre carta"}},
	{KeyTipo, []string{"tipo", "type", "card type", "categoria", "categoría"}},
	{KeyAtributo, []string{
		"elemento", "element", "energy type", "element type", "tipo elemento",
		"tipo de energia", "tipo de energía", "energia tipo", "energía tipo",
	}},
	{KeyNivel, []string{"hp", "vida", "puntos de vida", "health", "pv"}},
	{KeySubtipo, []string{"subtipo", "subtype", "sub type", "stage", "subcategoria", "sub-categoria", "sub categoría"}},
	{KeyEvolucionaDe, []string{
		"evolucionade", "evoluciona de", "evoluciona_de", "evolución de", "evolución_de",
		"evolves from", "from", "pre-evolucion", "pre evolucion", "pre-evolución",
	}},
	{KeyEvolucionaA, []string{
		"evoluciona a", "evoluciona_a", "evolución a", "evolución_a",
		"evolves to", "evolves into", "to", "evoluciona", "evoluciona en",
	}},
	{KeyCantidad, []string{"cantidad", "qty", "quantity", "cant", "stock"}},
	{KeyIdioma, []string{"idioma", "language", "lang"}},
	{KeyPrecio, []string{"precio", "price", "valor", "costo", "cost"}},
	{KeyFechaCompra, []string{"fecha", "fecha_compra", "fecha compra", "fecha ingreso", "fecha de ingreso", "date", "purchase date"}},
	{KeyNotas, []string{"notas", "notes", "observaciones", "obs"}},
	{KeyImagenURL, []string{
		"imagenurl", "imagen url", "imageurl", "image url", "url", "url imagen",
		"url de imagen", "image", "img", "foto", "foto url",
	}},
}

// FieldAliases maps query field tokens to canonical keys.
var FieldAliases = AliasTable{
	{KeyNum, []string{"#", "num", "numero", "n"}},
	{KeyEdicion, []string{"set", "edicion", "expansion", "coleccion"}},
	{KeyNombre, []string{"nombre", "name", "cardname", "carta"}},
	{KeyTipo, []string{"tipo", "type", "cat", "categoria"}},
	{KeyAtributo, []string{"atributo", "elemento", "element", "energy", "energia"}},
	{KeyNivel, []string{"hp", "nivel", "vida", "pv", "health"}},
	{KeySubtipo, []string{"subtipo", "sub", "stage", "subtype"}},
	{KeyCantidad, []string{"cantidad", "cant", "qty", "quantity", "stock"}},
	{KeyIdioma, []string{"idioma", "lang", "language"}},
	{KeyPrecio, []string{"precio", "price", "valor", "costo", "cost"}},
	{KeyFechaCompra, []string{"fecha", "date", "fecha_compra"}},
	{KeyNotas, []string{"notas", "notes", "obs", "observaciones"}},
	{KeyAnio, []string{"anio", "año", "year"}},
	{KeyEvolucionaDe, []string{"de", "from", "evolucionade", "evoluciona_de", "evoluciona", "preevolucion"}},
	{KeyEvolucionaA, []string{"a", "to", "evoluciona_a", "evolucionaen"}},
}

// SearchKeys are the columns free text and the default filter look at.
var SearchKeys = []Key{
	KeyNum, KeyNombre, KeyEdicion, KeyAnio, KeyTipo, KeyAtributo, KeyNivel,
	KeySubtipo, KeyEvolucionaDe, KeyEvolucionaA, KeyIdioma, KeyPrecio,
	KeyFechaCompra, KeyNotas,
}

// FormFields lists the editable fields in input order. Form field names equal
// canonical keys except "categoria", which saves into the tipo column.
var FormFields = []string{
	"num", "edicion", "anio", "nombre", "categoria", "subtipo", "atributo", "nivel",
	"evoluciona_de", "evoluciona_a", "cantidad", "idioma", "precio", "fecha_compra",
	"notas", "imagenurl",
}

// RequiredFields must be non-blank before a save.
var RequiredFields = []string{"nombre"}

// FieldKey returns the column a form field saves into.
func FieldKey(field string) Key {
	if field == "categoria" {
		return KeyTipo
	}
	return Key(field)
}

// KeyField is the inverse of FieldKey, used to pre-fill a form from a record.
func KeyField(k Key) string {
	if k == KeyTipo {
		return "categoria"
	}
	return string(k)
}

// TableColumn is a column of the compact table view.
type TableColumn struct {
	Key   Key
	Label string
}

// TableColumns is the compact table layout.
var TableColumns = []TableColumn{
	{KeyNum, "#"},
	{KeyNombre, "Nombre"},
	{KeyTipo, "Tipo"},
	{KeyAtributo, "Elemento"},
	{KeyNivel, "HP"},
	{KeyEdicion, "Set"},
	{KeyCantidad, "Cant."},
	{KeyPrecio, "Precio"},
	{KeyFechaCompra, "Fecha"},
}
