package sniffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConfig(t *testing.T) {
	t.Run("comma header with BOM", func(t *testing.T) {
		data := []byte("\uFEFFfecha,mercado,ano,monto,descripcion\n2024-03-01,Acciones,2024,100,Prueba\n")

		cfg, err := DetectConfig(data)

		require.NoError(t, err)
		assert.Equal(t, ',', cfg.Delimiter)
		assert.Equal(t, []string{"fecha", "mercado", "ano", "monto", "descripcion"}, cfg.Headers)
		assert.Equal(t, "fecha", cfg.RawHeaders[0])
	})

	t.Run("semicolon header with accents", func(t *testing.T) {
		data := []byte("Fecha;Mercado;Año;Monto;Descripción\r\n01/03/2024;Bonos;2024;1.500,50;x\r\n")

		cfg, err := DetectConfig(data)

		require.NoError(t, err)
		assert.Equal(t, ';', cfg.Delimiter)
		assert.Equal(t, []string{"fecha", "mercado", "ano", "monto", "descripcion"}, cfg.Headers)
		assert.Equal(t, "Año", cfg.RawHeaders[2])
	})

	t.Run("multi word headers", func(t *testing.T) {
		cfg, err := DetectConfig([]byte("Nombre Factor,Valor Factor, Fecha  Inicio\n"))

		require.NoError(t, err)
		assert.Equal(t, []string{"nombre_factor", "valor_factor", "fecha_inicio"}, cfg.Headers)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := DetectConfig([]byte("\uFEFF  \n"))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("same headers share a fingerprint", func(t *testing.T) {
		a, err := DetectConfig([]byte("fecha;mercado\n"))
		require.NoError(t, err)
		b, err := DetectConfig([]byte("FECHA,Mercado\n"))
		require.NoError(t, err)
		assert.Equal(t, Fingerprint(a.Headers), Fingerprint(b.Headers))
		assert.Len(t, Fingerprint(a.Headers), 16)
		assert.NotEqual(t, Fingerprint(a.Headers), Fingerprint([]string{"mercado", "fecha"}))
	})
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ';', DetectDelimiter("a;b,c"))
	assert.Equal(t, ',', DetectDelimiter("a,b"))
	assert.Equal(t, '\t', DetectDelimiter("a\tb"))
	assert.Equal(t, ',', DetectDelimiter("single"))
}
